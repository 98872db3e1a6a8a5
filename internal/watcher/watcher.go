// Package watcher contains the two decision loops of the trader: the
// condition watcher, which buys instruments newly matching the screening
// condition, and the price watcher, which sells held positions when their
// earning rate leaves the configured profit/loss band. Both loops issue all
// broker work through the command bus and share the position ledger as their
// only common state.
package watcher

import (
	"context"
	"fmt"
	"regexp"

	"github.com/Taekhyang/kiwoom-condition-trader/internal/domain"
)

// Commander is the slice of the command bus the watchers need.
type Commander interface {
	Submit(ctx context.Context, cmd domain.Command) (domain.Reply, error)
}

// orderNumberRe matches a well-formed broker order number. The broker
// signals a rejected order by replying with a non-numeric error code in the
// order number's place.
var orderNumberRe = regexp.MustCompile(`^[0-9]+$`)

// orderNumber extracts the order number from a buy or sell reply, returning
// domain.ErrBrokerRejected when the broker answered with an error code
// instead.
func orderNumber(reply domain.Reply) (string, error) {
	if !orderNumberRe.MatchString(reply.OrderID) {
		return "", fmt.Errorf("%w: code %s", domain.ErrBrokerRejected, reply.OrderID)
	}
	return reply.OrderID, nil
}
