package eventlog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"judgedescrow/core/types"
)

type wrapped struct{ evt *types.Event }

func (w wrapped) EventType() string   { return w.evt.Type }
func (w wrapped) Event() *types.Event { return w.evt }

type bare string

func (b bare) EventType() string { return string(b) }

func TestLogAppendAndRecent(t *testing.T) {
	log, err := Open(filepath.Join(t.TempDir(), "events.db"), nil)
	require.NoError(t, err)
	defer log.Close()

	log.Emit(wrapped{&types.Event{Type: "escrow.created", Attributes: map[string]string{"payer": "0x01", "amount": "1000"}}})
	log.Emit(wrapped{&types.Event{Type: "escrow.config.created", Attributes: map[string]string{"judge": "0xaa"}}})
	log.Emit(wrapped{&types.Event{Type: "escrow.released", Attributes: map[string]string{"payer": "0x01", "payout": "950"}}})
	log.Emit(bare("ignored"))

	recent, err := log.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "escrow.released", recent[0].Type)
	require.Equal(t, "950", recent[0].Attributes["payout"])
	require.Equal(t, "escrow.config.created", recent[1].Type)
	require.Greater(t, recent[0].Sequence, recent[1].Sequence)

	byPayer, err := log.ByPayer(context.Background(), "0x01", 0)
	require.NoError(t, err)
	require.Len(t, byPayer, 2)
	require.Equal(t, "escrow.created", byPayer[1].Type)
}

func TestLogReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	log, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, log.Append(context.Background(), &types.Event{Type: "escrow.deposited"}))
	require.NoError(t, log.Close())

	log, err = Open(path, nil)
	require.NoError(t, err)
	defer log.Close()
	recent, err := log.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Empty(t, recent[0].Attributes)
}
