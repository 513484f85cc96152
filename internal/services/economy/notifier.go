package economy

// Notifier is the capability the core calls into when a balance changes and
// the HUD is enabled. The presentation layer implements it; the core never
// renders, it only emits the changed value.
type Notifier interface {
	BalanceChanged(identity string, balance int64)
}

// NopNotifier drops all notifications.
type NopNotifier struct{}

func (NopNotifier) BalanceChanged(string, int64) {}
