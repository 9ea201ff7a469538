package ledger

import (
	"context"
	"fmt"

	ledger_go "github.com/zondax/ledger-go"
	"moff.io/moff-wallet/pkg/errors"
)

var (
	// ErrTransport covers an unreachable device, a locked device and the wrong app or firmware.
	ErrTransport      = errors.New("ledger transport error")
	ErrDeviceNotFound = errors.New("ledger device not found")
)

type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Enumerator lists the devices currently attached.
type Enumerator interface {
	Devices(ctx context.Context) ([]Device, error)
}

// HIDEnumerator counts ledgers on the usb hid bus.
type HIDEnumerator struct {
	admin ledger_go.LedgerAdmin
}

func NewHIDEnumerator() *HIDEnumerator {
	return &HIDEnumerator{admin: ledger_go.NewLedgerAdmin()}
}

func (e *HIDEnumerator) Devices(ctx context.Context) ([]Device, error) {
	n := e.admin.CountDevices()
	devices := make([]Device, 0, n)
	for i := 0; i < n; i++ {
		devices = append(devices, Device{
			ID:   fmt.Sprintf("hid:%d", i),
			Name: fmt.Sprintf("Ledger #%d", i+1),
		})
	}
	return devices, nil
}
