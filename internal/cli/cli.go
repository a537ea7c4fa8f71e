package cli

import "github.com/alecthomas/kong"

type CLI struct {
	Run           Run              `kong:"cmd,help='Run abuse protection service.'"`
	Health        Health           `kong:"cmd,help='Check service health via metrics endpoint.'"`
	GenerateSalts GenerateSalts    `kong:"cmd,help='Generate a fresh pair of hasher salts.'"`
	Version       kong.VersionFlag `kong:"help='Print version.',short='v'"`
}
