//go:build !windows

package workbook

// NewRobotKeys has no keyboard to drive off windows
func NewRobotKeys() KeySender {
	return nil
}
