package settings_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meshworks/meshd/mesh/settings"
	"github.com/meshworks/meshd/mesh/table"
)

// The byte images are the storage contract, so the packed records are
// checked against fixed vectors rather than just round-tripped.
func TestRecordLayouts(t *testing.T) {
	seq := settings.SeqVal{Seq: 0xabcdef}
	require.Equal(t, []byte{0xef, 0xcd, 0xab}, seq.Encode())

	iv := settings.IVVal{Index: 0x11223344, Update: true, Duration: 5}
	require.Equal(t, []byte{0x44, 0x33, 0x22, 0x11, 0x0b}, iv.Encode())

	rpl := settings.RPLVal{Seq: 0x654321, OldIV: true}
	require.Equal(t, []byte{0x21, 0x43, 0x65, 0x01}, rpl.Encode())

	netKey := settings.NetKeyVal{KRFlag: true, KRPhase: table.KRPhase2}
	require.Equal(t, byte(0x05), netKey.Encode()[0])

	hb := settings.HBPubVal{
		Dst:        0x0101,
		Period:     3,
		TTL:        7,
		Feat:       0x000f,
		NetIdx:     0xabc,
		Indefinite: true,
	}
	require.Equal(t, []byte{0x01, 0x01, 0x03, 0x07, 0x0f, 0x00, 0xbc, 0x1a}, hb.Encode())

	pub := settings.ModPubVal{
		Addr:       0xc000,
		Key:        0x0123,
		TTL:        8,
		Retransmit: 0x21,
		Period:     0x41,
		PeriodDiv:  3,
		Cred:       true,
	}
	require.Equal(t, []byte{0x00, 0xc0, 0x23, 0x01, 0x08, 0x21, 0x41, 0x13}, pub.Encode())

	var seq2 settings.SeqVal
	require.NoError(t, seq2.Decode(seq.Encode()))
	require.Equal(t, seq, seq2)

	var iv2 settings.IVVal
	require.NoError(t, iv2.Decode(iv.Encode()))
	require.Equal(t, iv, iv2)

	var rpl2 settings.RPLVal
	require.NoError(t, rpl2.Decode(rpl.Encode()))
	require.Equal(t, rpl, rpl2)

	var hb2 settings.HBPubVal
	require.NoError(t, hb2.Decode(hb.Encode()))
	require.Equal(t, hb, hb2)

	var pub2 settings.ModPubVal
	require.NoError(t, pub2.Decode(pub.Encode()))
	require.Equal(t, pub, pub2)

	va := settings.VaVal{
		Ref:  2,
		Addr: 0xb000,
		UUID: uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
	}
	enc := va.Encode()
	require.Len(t, enc, settings.VaValLen)
	require.Equal(t, []byte{0x02, 0x00, 0x00, 0xb0}, enc[:4])

	var va2 settings.VaVal
	require.NoError(t, va2.Decode(enc))
	require.Equal(t, va, va2)
}

func TestRecordLengthMismatch(t *testing.T) {
	var net settings.NetVal
	require.ErrorIs(t, net.Decode([]byte{1, 2, 3}), settings.ErrLengthMismatch)

	var iv settings.IVVal
	require.ErrorIs(t, iv.Decode(make([]byte, settings.IVValLen+1)), settings.ErrLengthMismatch)

	var node settings.NodeVal
	require.ErrorIs(t, node.Decode(nil), settings.ErrLengthMismatch)
}
