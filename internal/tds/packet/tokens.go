package packet

// Token type IDs (MS-TDS 2.2.7), grounded on the retrieved go-mssqldb
// token.go reference. These are recognized by the read pipeline's
// token-parser collaborator above C3, and by C8 when draining
// env-change records during attention handling.
const (
	TokenEnvChange   byte = 0xE3
	TokenDone        byte = 0xFD
	TokenDoneProc    byte = 0xFE
	TokenDoneInProc  byte = 0xFF
	TokenSSPI        byte = 0xED
	TokenFedAuthInfo byte = 0xEE
	TokenError       byte = 0xAA
	TokenLoginAck    byte = 0xAD
)

// EnvChange sub-type IDs carried in a TokenEnvChange token's first
// payload byte (MS-TDS 2.2.7.9).
const (
	EnvTypBeginTran    byte = 8
	EnvTypCommitTran   byte = 9
	EnvTypRollbackTran byte = 10
	EnvEnlistDTC       byte = 11
	EnvDefectTran      byte = 12
	EnvPromoteTran     byte = 15
)

// DONE token status bits (MS-TDS 2.2.7.5).
const (
	DoneFinal    uint16 = 0x00
	DoneMore     uint16 = 0x01
	DoneError    uint16 = 0x02
	DoneInxact   uint16 = 0x04
	DoneCount    uint16 = 0x10
	DoneAttn     uint16 = 0x20
	DoneSrvError uint16 = 0x100
)

// TRANSACTION_MANAGER request subtypes (MS-TDS 2.2.7.17), used to
// classify an outgoing RPC as a begin/commit/rollback/savepoint request.
const (
	TMBeginXact    uint16 = 5
	TMCommitXact   uint16 = 7
	TMRollbackXact uint16 = 8
	TMSavepoint    uint16 = 9
)
