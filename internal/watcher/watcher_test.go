package watcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Taekhyang/kiwoom-condition-trader/internal/domain"
)

func TestOrderNumberValidation(t *testing.T) {
	t.Parallel()

	id, err := orderNumber(domain.Reply{OrderID: "900123"})
	require.NoError(t, err)
	assert.Equal(t, "900123", id)

	_, err = orderNumber(domain.Reply{OrderID: "-308"})
	require.ErrorIs(t, err, domain.ErrBrokerRejected)

	_, err = orderNumber(domain.Reply{OrderID: ""})
	require.ErrorIs(t, err, domain.ErrBrokerRejected)
}
