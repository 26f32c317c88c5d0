package stream

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/helinwang/matchdex/pkg/dex"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, m ...kafka.Message) error {
	f.msgs = append(f.msgs, m...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *mockWriter) Close() error {
	return m.Called().Error(0)
}

func TestPublish(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(w, 0)
	a := common.HexToAddress("0x0a")
	b := common.HexToAddress("0x0b")

	ev := dex.Event{ID: "e1", Type: dex.OrderFilled, OrderID: 2, CounterOrderID: 1, Token: b, CounterToken: a, Amount: big.NewInt(5)}
	require.NoError(t, p.Emit(context.Background(), ev))
	require.NoError(t, p.Emit(context.Background(), dex.Event{ID: "e2", Type: dex.OrderCreated, Token: a, CounterToken: b}))
	require.NoError(t, p.Emit(context.Background(), dex.Event{ID: "e3", Type: dex.FeeRateChanged, Amount: big.NewInt(30)}))
	require.NoError(t, p.Emit(context.Background(), dex.Event{ID: "e4", Type: dex.TokenVerifiedChanged, Token: a, Flag: true}))
	require.Len(t, w.msgs, 4)

	// both orientations of a pair share the key
	assert.Equal(t, w.msgs[0].Key, w.msgs[1].Key)
	assert.Equal(t, []byte(dex.FeeRateChanged), w.msgs[2].Key)
	assert.Equal(t, []byte(a.Hex()), w.msgs[3].Key)
	assert.Equal(t, "type", w.msgs[0].Headers[0].Key)
	assert.Equal(t, []byte(dex.OrderFilled), w.msgs[0].Headers[0].Value)

	var got dex.Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "e1", got.ID)
	assert.Equal(t, uint64(1), got.CounterOrderID)
	assert.Equal(t, int64(5), got.Amount.Int64())

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishError(t *testing.T) {
	w := &mockWriter{}
	w.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()
	w.On("Close").Return(nil)

	p := newPublisher(w, time.Second)
	err := p.Emit(context.Background(), dex.Event{ID: "e1", Type: dex.OrderCreated})
	assert.EqualError(t, err, "broker down")
	require.NoError(t, p.Close())
	w.AssertExpectations(t)
}
