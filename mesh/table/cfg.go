package table

import "time"

// Feature states reported by the configuration server.
const (
	FeatureDisabled     uint8 = 0x00
	FeatureEnabled      uint8 = 0x01
	FeatureNotSupported uint8 = 0x02
)

// Transmit packs a retransmission count and interval into one byte: the
// count in the low three bits, the 10ms interval steps less one above.
func Transmit(count uint8, intervalMs uint16) uint8 {
	return count&0x07 | uint8(intervalMs/10-1)<<3
}

// TransmitCount returns the retransmission count of a packed transmit value.
func TransmitCount(transmit uint8) uint8 {
	return transmit & 0x07
}

// TransmitInterval returns the interval of a packed transmit value.
func TransmitInterval(transmit uint8) time.Duration {
	return time.Duration(transmit>>3+1) * 10 * time.Millisecond
}

// CfgServer is the runtime state of the configuration server model.
type CfgServer struct {
	NetTransmit     uint8
	Relay           uint8
	RelayRetransmit uint8
	Beacon          uint8
	Proxy           uint8
	Friend          uint8
	DefaultTTL      uint8
}

// DefaultCfgServer returns a configuration server in its hardcoded default
// state: beacons on, relaying off, proxy and friend unsupported, TTL 7.
func DefaultCfgServer() *CfgServer {
	return &CfgServer{
		NetTransmit:     Transmit(2, 20),
		Relay:           FeatureDisabled,
		RelayRetransmit: Transmit(2, 20),
		Beacon:          FeatureEnabled,
		Proxy:           FeatureNotSupported,
		Friend:          FeatureNotSupported,
		DefaultTTL:      7,
	}
}

// HeartbeatIndefinite as a publication count makes heartbeat publication
// run until explicitly reconfigured.
const HeartbeatIndefinite uint16 = 0xffff

// HeartbeatPub is the heartbeat publication state. An unassigned
// destination means publication is disabled.
type HeartbeatPub struct {
	Dst    uint16
	Count  uint16
	Period uint8
	TTL    uint8
	Feat   uint16
	NetIdx uint16
}

// Enabled reports whether heartbeat publication is configured to run.
func (hb *HeartbeatPub) Enabled() bool {
	return hb.Dst != AddrUnassigned && hb.Count != 0 && hb.Period != 0
}

// PubPeriod returns the heartbeat interval. Period is log encoded as
// 2^(n-1) seconds; zero disables publication.
func (hb *HeartbeatPub) PubPeriod() time.Duration {
	if hb.Period == 0 {
		return 0
	}
	return time.Duration(1) << (hb.Period - 1) * time.Second
}
