package ble

import (
	"sync"
)

// fakeAdapter simulates the platform BLE stack: a central connecting,
// writing characteristics, and receiving notifies.
type fakeAdapter struct {
	mu          sync.Mutex
	cfg         AdapterConfig
	advertising bool
	advertises  int
	connected   bool
	remote      string
	mtu         int
	notifies    map[string][][]byte
	disconnects int
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{notifies: make(map[string][][]byte)}
}

func (a *fakeAdapter) Configure(cfg AdapterConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg = cfg
	return nil
}

func (a *fakeAdapter) Advertise() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.advertising = true
	a.advertises++
	return nil
}

func (a *fakeAdapter) StopAdvertising() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.advertising = false
	return nil
}

func (a *fakeAdapter) Notify(charUUID string, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	a.notifies[charUUID] = append(a.notifies[charUUID], cp)
	return nil
}

func (a *fakeAdapter) Disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = false
	a.disconnects++
	return nil
}

func (a *fakeAdapter) MTU() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mtu
}

// centralConnect simulates a central connecting.
func (a *fakeAdapter) centralConnect(remote string) {
	a.mu.Lock()
	a.connected = true
	a.remote = remote
	onConnect := a.cfg.OnConnect
	a.mu.Unlock()
	if onConnect != nil {
		onConnect(remote)
	}
}

// centralDisconnect simulates the link dropping from the central side.
func (a *fakeAdapter) centralDisconnect() {
	a.mu.Lock()
	remote := a.remote
	a.connected = false
	onDisconnect := a.cfg.OnDisconnect
	a.mu.Unlock()
	if onDisconnect != nil {
		onDisconnect(remote)
	}
}

// centralWrite simulates a characteristic write from the central.
func (a *fakeAdapter) centralWrite(charUUID string, data []byte) bool {
	a.mu.Lock()
	var onWrite func([]byte)
	for _, cc := range a.cfg.Characteristics {
		if cc.UUID == charUUID {
			onWrite = cc.OnWrite
			break
		}
	}
	a.mu.Unlock()
	if onWrite == nil {
		return false
	}
	onWrite(data)
	return true
}

func (a *fakeAdapter) notifyCount(charUUID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.notifies[charUUID])
}

func (a *fakeAdapter) lastNotify(charUUID string) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := a.notifies[charUUID]
	if len(n) == 0 {
		return nil
	}
	return n[len(n)-1]
}

func (a *fakeAdapter) advertiseCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.advertises
}

var _ Adapter = (*fakeAdapter)(nil)
