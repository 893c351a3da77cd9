// Mgmt
// Copyright (C) 2013-2024+ James Shubin and the project contributors
// Written by James Shubin <james@shubin.ca> and the project contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package model

// Team is a closed set of color/codeword group names used to scope team
// chat and team-scoped routing.
type Team string

// The recognized team names. Any other name coerces to TeamUnknown.
const (
	TeamCyan      Team = "Cyan"
	TeamYellow    Team = "Yellow"
	TeamRed       Team = "Red"
	TeamGreen     Team = "Green"
	TeamBlue      Team = "Blue"
	TeamOrange    Team = "Orange"
	TeamMagenta   Team = "Magenta"
	TeamWhite     Team = "White"
	TeamMaroon    Team = "Maroon"
	TeamPurple    Team = "Purple"
	TeamDarkBlue  Team = "Dark Blue"
	TeamTeal      Team = "Teal"
	TeamDarkGreen Team = "Dark Green"
	TeamBrown     Team = "Brown"
	TeamUnknown   Team = "UNKNOWN"
)

var knownTeams = map[string]Team{
	string(TeamCyan):      TeamCyan,
	string(TeamYellow):    TeamYellow,
	string(TeamRed):       TeamRed,
	string(TeamGreen):     TeamGreen,
	string(TeamBlue):      TeamBlue,
	string(TeamOrange):    TeamOrange,
	string(TeamMagenta):   TeamMagenta,
	string(TeamWhite):     TeamWhite,
	string(TeamMaroon):    TeamMaroon,
	string(TeamPurple):    TeamPurple,
	string(TeamDarkBlue):  TeamDarkBlue,
	string(TeamTeal):      TeamTeal,
	string(TeamDarkGreen): TeamDarkGreen,
	string(TeamBrown):     TeamBrown,
}

// ParseTeam coerces a raw group name into a Team, falling back to
// TeamUnknown for anything not in the closed set.
func ParseTeam(name string) Team {
	if t, ok := knownTeams[name]; ok {
		return t
	}
	return TeamUnknown
}
