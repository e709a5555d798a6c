//go:build windows

package workbook

import (
	"time"

	"github.com/go-vgo/robotgo"
)

// RobotKeys reaches the refresh button by tabbing from the input block
type RobotKeys struct {
	Tabs  int
	Pause time.Duration
}

// NewRobotKeys returns the sequence that works on the default sheet: three tabs then enter
func NewRobotKeys() *RobotKeys {
	return &RobotKeys{Tabs: 3, Pause: 200 * time.Millisecond}
}

func (k *RobotKeys) PressButton() error {
	for i := 0; i < k.Tabs; i++ {
		if err := robotgo.KeyTap("tab"); err != nil {
			return err
		}
		time.Sleep(k.Pause)
	}
	return robotgo.KeyTap("enter")
}
