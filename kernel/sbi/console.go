package sbi

// Console is an io.Writer that sends every byte written to it to the
// firmware console via ConsolePutByte. Kmain installs it as kfmt's output
// sink before printing anything, the same way gopheros's hal.go installs its
// active TTY driver as kfmt's sink once the console device is up.
type Console struct{}

// Write implements io.Writer. It always consumes the whole of p.
func (Console) Write(p []byte) (int, error) {
	for _, b := range p {
		ConsolePutByte(b)
	}
	return len(p), nil
}
