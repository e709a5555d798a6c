//go:build !windows

package workbook

import "context"

// Open always fails off windows; use the file backend there
func (o *ComOpener) Open(context.Context) (Workbook, error) {
	return nil, ErrComUnavailable
}
