// Package branding centralizes the Mission Control identity constants
// and terminal colors shared by the CLI commands.
package branding

// Application identity constants.
const (
	AppName    = "Mission Control"
	CLIName    = "Mission Control Gateway Client"
	BinaryName = "mctl"
)

// Terminal colors in hex format for lipgloss true color support.
const (
	// ColorPrimary is used for in-progress states.
	ColorPrimary = "#8B5CF6"
	// ColorDeepViolet backs highlighted values such as pairing codes.
	ColorDeepViolet = "#4C1D95"
	// ColorTeal marks a live connection.
	ColorTeal = "#14B8A6"
	// ColorCoral marks errors and a dropped connection.
	ColorCoral = "#E11D48"
	ColorWhite = "#FFFFFF"
	// ColorLightGray is used for field labels.
	ColorLightGray = "#A1A1AA"
	// ColorMutedGray is used for hints.
	ColorMutedGray = "#71717A"
)

// Banner is printed by `mctl version`.
const Banner = `
  __  __  ___
 |  \/  |/ __|
 | |\/| | (__
 |_|  |_|\___|`

// VersionBanner returns the banner with the application name appended.
func VersionBanner() string {
	return Banner + "\n  " + CLIName + "\n"
}
