package coretest

import (
	"sync"

	"github.com/dkeye/Stage/internal/core"
)

type Delivered struct {
	To           core.SessionID
	Notification core.Notification
}

// Notifier records every notification. Recipients listed in Refuse are
// reported as dropped.
type Notifier struct {
	mu        sync.Mutex
	delivered []Delivered
	kicked    []core.SessionID
	Refuse    map[core.SessionID]bool
}

func NewNotifier() *Notifier {
	return &Notifier{Refuse: make(map[core.SessionID]bool)}
}

func (n *Notifier) Notify(to []core.SessionID, note core.Notification) core.PublishResult {
	n.mu.Lock()
	defer n.mu.Unlock()
	res := core.PublishResult{}
	for _, sid := range to {
		if n.Refuse[sid] {
			res.Dropped = append(res.Dropped, sid)
			continue
		}
		n.delivered = append(n.delivered, Delivered{To: sid, Notification: note})
		res.SendTo++
	}
	return res
}

func (n *Notifier) Kick(sid core.SessionID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kicked = append(n.kicked, sid)
}

// For returns the notifications delivered to sid with the given method.
func (n *Notifier) For(sid core.SessionID, method string) []core.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []core.Notification
	for _, d := range n.delivered {
		if d.To == sid && d.Notification.Method == method {
			out = append(out, d.Notification)
		}
	}
	return out
}

func (n *Notifier) Kicked() []core.SessionID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]core.SessionID(nil), n.kicked...)
}
