package observability

import "rentcase/internal/domain"

// Fanout delivers every event to each non-nil observer in order.
func Fanout(observers ...domain.Observer) domain.Observer {
	var live []domain.Observer
	for _, o := range observers {
		if o != nil {
			live = append(live, o)
		}
	}
	return domain.ObserverFunc(func(e domain.QueryEvent) {
		for _, o := range live {
			o.Observe(e)
		}
	})
}
