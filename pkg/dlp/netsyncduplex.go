package dlp

// netsyncCodec is the subset of *netsync.Codec that NetsyncDuplex needs;
// declared locally so this package does not import netsync, keeping the
// transport-independent DLP layer free of a hard dependency on any one
// framing below it.
type netsyncCodec interface {
	Send(dataType uint8, body []byte) error
	Receive() ([]byte, error)
}

// netsyncDataType is the fixed data-type byte NetSync uses for DLP
// traffic, per spec.md §4.4.
const netsyncDataType = 0x00

// NetsyncDuplex adapts a NetSync codec to the Duplex interface Execute
// expects, fixing the data-type byte NetSync carries alongside every
// message to the value reserved for DLP traffic.
type NetsyncDuplex struct {
	Codec netsyncCodec
}

func (d NetsyncDuplex) Send(payload []byte) error {
	return d.Codec.Send(netsyncDataType, payload)
}

func (d NetsyncDuplex) Receive() ([]byte, error) {
	return d.Codec.Receive()
}
