package dlp

// Command IDs, per spec.md §6's DLP command table.
const (
	cmdReadUserInfo    = 0x10
	cmdWriteUserInfo   = 0x11
	cmdReadSysInfo     = 0x12
	cmdGetSysDateTime  = 0x13
	cmdSetSysDateTime  = 0x14
	cmdReadStorageInfo = 0x15
	cmdReadDBList      = 0x16
	cmdOpenDB          = 0x17
	cmdCreateDB        = 0x18
	cmdCloseDB         = 0x19
	cmdDeleteDB        = 0x1A
	cmdReadRecordByID  = 0x1F
	cmdWriteRecord     = 0x21
	cmdDeleteRecord    = 0x22
	cmdReadRecordByIdx = 0x24
	cmdEndOfSync       = 0x2C
)

// ReadSysInfoRequest takes no arguments; it asks the handheld for its ROM
// and locale system information (spec.md §8 scenario 1).
type ReadSysInfoRequest struct{}

func (ReadSysInfoRequest) CommandID() uint8 { return cmdReadSysInfo }
func (ReadSysInfoRequest) Fields() []Field  { return nil }
func (ReadSysInfoRequest) NewResponse() Response {
	return &ReadSysInfoResponse{}
}

// ReadSysInfoResponse carries the handheld's ROM version and a locale
// identifier; spec.md §8 scenario 1 gives its wire form as a single tiny
// argument of 10 bytes.
type ReadSysInfoResponse struct {
	ROMVersion   uint32
	LocaleID     uint32
	ProductIDLen uint8
	Reserved     uint8
}

// Fields returns a single RecordField: the wire reply packs all four
// scalars into one tiny argument (spec.md §8 scenario 1), so the Go-level
// schema must expose exactly one top-level Field to match it one-for-one
// with the one wire argument.
func (r *ReadSysInfoResponse) Fields() []Field {
	return []Field{
		RecordField{V: anonRecord{
			Uint32Field{&r.ROMVersion},
			Uint32Field{&r.LocaleID},
			Uint8Field{&r.ProductIDLen},
			Uint8Field{&r.Reserved},
		}},
	}
}

// ensure Command compiles against every request type below.
var (
	_ Command = ReadSysInfoRequest{}
	_ Command = (*ReadUserInfoRequest)(nil)
	_ Command = (*EndOfSyncRequest)(nil)
	_ Command = (*OpenDBRequest)(nil)
	_ Command = (*CloseDBRequest)(nil)
	_ Command = (*ReadDBListRequest)(nil)
	_ Command = (*ReadRecordByIndexRequest)(nil)
	_ Command = (*WriteRecordRequest)(nil)
	_ Command = (*DeleteRecordRequest)(nil)
)

// ReadUserInfoRequest takes no arguments and returns the identity of the
// user account the handheld is registered to.
type ReadUserInfoRequest struct{}

func (*ReadUserInfoRequest) CommandID() uint8     { return cmdReadUserInfo }
func (*ReadUserInfoRequest) Fields() []Field      { return nil }
func (*ReadUserInfoRequest) NewResponse() Response { return &ReadUserInfoResponse{} }

// ReadUserInfoResponse identifies which desktop last synced this handheld,
// the anchor values syncsrv.Classify compares against (spec.md §5.2).
type ReadUserInfoResponse struct {
	UserID        uint32
	ViewerID      uint32
	LastSyncPC    uint32
	SuccessSyncAt uint32
	LastSyncAt    uint32
	UserName      string
}

// Fields returns a single RecordField: like ReadSysInfoResponse, the wire
// reply packs every scalar plus the trailing user name into one argument,
// so the schema must expose exactly one top-level Field for it.
func (r *ReadUserInfoResponse) Fields() []Field {
	return []Field{
		RecordField{V: anonRecord{
			Uint32Field{&r.UserID},
			Uint32Field{&r.ViewerID},
			Uint32Field{&r.LastSyncPC},
			Uint32Field{&r.SuccessSyncAt},
			Uint32Field{&r.LastSyncAt},
			CStringField{&r.UserName},
		}},
	}
}

// WriteUserInfoRequest updates the handheld's record of which desktop it
// last synced with and when.
type WriteUserInfoRequest struct {
	LastSyncPC uint32
	LastSyncAt uint32
}

func (r *WriteUserInfoRequest) CommandID() uint8 { return cmdWriteUserInfo }
func (r *WriteUserInfoRequest) Fields() []Field {
	return []Field{
		Uint32Field{&r.LastSyncPC},
		Uint32Field{&r.LastSyncAt},
	}
}
func (r *WriteUserInfoRequest) NewResponse() Response { return &emptyResponse{} }

// EndOfSyncRequest is the final command of every session, per spec.md
// §4.5's SYNCING -> ENDING transition; Status reports whether the desktop
// considers the sync to have completed cleanly.
type EndOfSyncRequest struct {
	Status uint16
}

func (r *EndOfSyncRequest) CommandID() uint8 { return cmdEndOfSync }
func (r *EndOfSyncRequest) Fields() []Field {
	return []Field{Uint16Field{&r.Status}}
}
func (r *EndOfSyncRequest) NewResponse() Response { return &emptyResponse{} }

// OpenDBRequest opens a database by name on the given card, returning a
// handle for subsequent record operations.
type OpenDBRequest struct {
	CardID uint8
	Mode   uint8
	Name   string
}

func (r *OpenDBRequest) CommandID() uint8 { return cmdOpenDB }
func (r *OpenDBRequest) Fields() []Field {
	return []Field{
		Uint8Field{&r.CardID},
		Uint8Field{&r.Mode},
		CStringField{&r.Name},
	}
}
func (r *OpenDBRequest) NewResponse() Response { return &OpenDBResponse{} }

type OpenDBResponse struct {
	Handle uint8
}

func (r *OpenDBResponse) Fields() []Field {
	return []Field{Uint8Field{&r.Handle}}
}

// CloseDBRequest closes a previously opened database handle.
type CloseDBRequest struct {
	Handle uint8
}

func (r *CloseDBRequest) CommandID() uint8     { return cmdCloseDB }
func (r *CloseDBRequest) Fields() []Field       { return []Field{Uint8Field{&r.Handle}} }
func (r *CloseDBRequest) NewResponse() Response { return &emptyResponse{} }

// ReadDBListRequest enumerates the databases visible on a card, optionally
// restricted to RAM or ROM databases via Flags (spec.md §6).
type ReadDBListRequest struct {
	CardID    uint8
	Flags     uint8
	StartIdx  uint16
}

func (r *ReadDBListRequest) CommandID() uint8 { return cmdReadDBList }
func (r *ReadDBListRequest) Fields() []Field {
	return []Field{
		Uint8Field{&r.Flags},
		Uint8Field{&r.CardID},
		Uint16Field{&r.StartIdx},
	}
}
func (r *ReadDBListRequest) NewResponse() Response { return &ReadDBListResponse{} }

type ReadDBListResponse struct {
	LastIdx uint16
	Infos   []Record
}

func (r *ReadDBListResponse) Fields() []Field {
	return []Field{
		Uint16Field{&r.LastIdx},
		RecordArrayField{Elems: &r.Infos, New: func() Record { return &DBInfo{} }},
	}
}

// DBInfo is one entry in a database list, a fixed-width record followed by
// a null-terminated name (spec.md §6).
type DBInfo struct {
	Attributes uint16
	Version    uint16
	Type       uint32
	Creator    uint32
	Name       string
}

func (d *DBInfo) Fields() []Field {
	return []Field{
		Uint16Field{&d.Attributes},
		Uint16Field{&d.Version},
		Uint32Field{&d.Type},
		Uint32Field{&d.Creator},
		CStringField{&d.Name},
	}
}

// ReadRecordByIndexRequest fetches one record from an open database by its
// position in record order.
type ReadRecordByIndexRequest struct {
	Handle uint8
	Index  uint16
}

func (r *ReadRecordByIndexRequest) CommandID() uint8 { return cmdReadRecordByIdx }
func (r *ReadRecordByIndexRequest) Fields() []Field {
	return []Field{
		Uint8Field{&r.Handle},
		Uint16Field{&r.Index},
	}
}
func (r *ReadRecordByIndexRequest) NewResponse() Response { return &ReadRecordResponse{} }

type ReadRecordResponse struct {
	RecordID   uint32
	Attributes uint8
	Category   uint8
	Data       []byte
}

// Fields returns a single RecordField: the record header and its data
// travel as one wire argument, with Data (a BytesField, so it consumes
// whatever remains of the payload) last.
func (r *ReadRecordResponse) Fields() []Field {
	return []Field{
		RecordField{V: anonRecord{
			Uint32Field{&r.RecordID},
			Uint8Field{&r.Attributes},
			Uint8Field{&r.Category},
			BytesField{&r.Data},
		}},
	}
}

// WriteRecordRequest stores or updates one record. RecordID of zero asks
// the handheld to assign a fresh one, returned in WriteRecordResponse.
type WriteRecordRequest struct {
	Handle     uint8
	Attributes uint8
	RecordID   uint32
	Category   uint8
	Data       []byte
}

func (r *WriteRecordRequest) CommandID() uint8 { return cmdWriteRecord }
func (r *WriteRecordRequest) Fields() []Field {
	return []Field{
		Uint8Field{&r.Handle},
		Uint8Field{&r.Attributes},
		Uint32Field{&r.RecordID},
		Uint8Field{&r.Category},
		BytesField{&r.Data},
	}
}
func (r *WriteRecordRequest) NewResponse() Response { return &WriteRecordResponse{} }

type WriteRecordResponse struct {
	RecordID uint32
}

func (r *WriteRecordResponse) Fields() []Field {
	return []Field{Uint32Field{&r.RecordID}}
}

// DeleteRecordRequest removes one record from an open database by ID.
type DeleteRecordRequest struct {
	Handle   uint8
	Flags    uint8
	RecordID uint32
}

func (r *DeleteRecordRequest) CommandID() uint8 { return cmdDeleteRecord }
func (r *DeleteRecordRequest) Fields() []Field {
	return []Field{
		Uint8Field{&r.Handle},
		Uint8Field{&r.Flags},
		Uint32Field{&r.RecordID},
	}
}
func (r *DeleteRecordRequest) NewResponse() Response { return &emptyResponse{} }

// emptyResponse is used by commands whose success reply carries no
// arguments beyond the command header itself.
type emptyResponse struct{}

func (*emptyResponse) Fields() []Field { return nil }
