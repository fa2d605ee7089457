// Package serial is a minimal raw 8N1 writer for UART link.
package serial

const DefaultBaud = 115200

type Config struct {
	Device string `hcl:"device"`
	Baud   int    `hcl:"baud"`
}
