package value

// Facility codes, ported from pacsys.acnet.errors.AcnetFacility.
const (
	FacilityACNET = 1
	FacilityDIO   = 14
	FacilityFTP   = 15
	FacilityDBM   = 16
	FacilityDPM   = 17
)

// MakeError composes a composite status code from a facility and a signed
// error number, mirroring pacsys.acnet.errors.make_error.
func MakeError(facility int, errorNumber int) int {
	return facility + errorNumber*256
}

// Generic retry/timeout codes used by backends that cannot distinguish a
// finer-grained upstream failure (HTTP transport errors, wire timeouts).
var (
	ErrOK      = 0
	ErrRetry   = MakeError(FacilityACNET, -1)
	ErrTimeout = MakeError(FacilityACNET, -6) // ACNET_REQTMO
)

// A sample of the curated ACNET/DBM/FTP registry from the original
// pacsys.acnet.errors module. Not exhaustive — only the codes this module
// composes or tests against are named; parse_error/DecomposeErrorCode work
// for any composite code regardless of whether it has a registry entry.
var (
	AcnetPend         = MakeError(FacilityACNET, 1)
	AcnetEndmult      = MakeError(FacilityACNET, 2)
	AcnetReplyTimeout = MakeError(FacilityACNET, 3)
	AcnetDeprecated   = MakeError(FacilityACNET, 4)

	AcnetRetry        = MakeError(FacilityACNET, -1)
	AcnetNolclmem     = MakeError(FacilityACNET, -2)
	AcnetNoremmem     = MakeError(FacilityACNET, -3)
	AcnetRplypack     = MakeError(FacilityACNET, -4)
	AcnetReqpack      = MakeError(FacilityACNET, -5)
	AcnetReqtmo       = MakeError(FacilityACNET, -6)
	AcnetQuefull      = MakeError(FacilityACNET, -7)
	AcnetBusy         = MakeError(FacilityACNET, -8)
	AcnetNotConnected = MakeError(FacilityACNET, -21)
	AcnetArg          = MakeError(FacilityACNET, -22)
	AcnetIvm          = MakeError(FacilityACNET, -23)
	AcnetNoSuch       = MakeError(FacilityACNET, -24)
	AcnetReqrej       = MakeError(FacilityACNET, -25)
	AcnetCancelled    = MakeError(FacilityACNET, -26)
	AcnetNameInUse    = MakeError(FacilityACNET, -27)
	AcnetNcr          = MakeError(FacilityACNET, -28)
	AcnetNoNode       = MakeError(FacilityACNET, -30)
	AcnetTruncRequest = MakeError(FacilityACNET, -31)
	AcnetTruncReply   = MakeError(FacilityACNET, -32)
	AcnetNoTask       = MakeError(FacilityACNET, -33)
	AcnetDisconnected = MakeError(FacilityACNET, -34)
	AcnetLevel2       = MakeError(FacilityACNET, -35)
	AcnetHardIo       = MakeError(FacilityACNET, -36)
	AcnetNodeDown     = MakeError(FacilityACNET, -42)
	AcnetUtime        = MakeError(FacilityACNET, -49)
	AcnetInvarg       = MakeError(FacilityACNET, -50)

	DbmNoprop = MakeError(FacilityDBM, -13)

	DpmPend  = MakeError(FacilityDPM, 1)
	DpmStale = MakeError(FacilityDPM, 2)

	FtpCollecting = MakeError(FacilityFTP, 4)
	FtpWaitDelay  = MakeError(FacilityFTP, 3)
	FtpWaitEvent  = MakeError(FacilityFTP, 2)
	FtpPend       = MakeError(FacilityFTP, 1)

	FtpInvtyp     = MakeError(FacilityFTP, -1)
	FtpInvssdn    = MakeError(FacilityFTP, -2)
	FtpFeOutofmem = MakeError(FacilityFTP, -5)
	FtpNochan     = MakeError(FacilityFTP, -6)
	FtpNoDecoder  = MakeError(FacilityFTP, -7)
	FtpFePlotlim  = MakeError(FacilityFTP, -8)
	FtpInvnumdev  = MakeError(FacilityFTP, -9)
	FtpEndofdata  = MakeError(FacilityFTP, -10)
	FtpInvreqlen  = MakeError(FacilityFTP, -12)
	FtpNoData     = MakeError(FacilityFTP, -13)
	FtpInvreq     = MakeError(FacilityFTP, -14)
	FtpBadev      = MakeError(FacilityFTP, -15)
	FtpBumped     = MakeError(FacilityFTP, -16)
	FtpUnsfreq    = MakeError(FacilityFTP, -19)
	FtpBigdly     = MakeError(FacilityFTP, -20)
	FtpUnsdev     = MakeError(FacilityFTP, -21)
	FtpSoftware   = MakeError(FacilityFTP, -22)
	FtpNotrdy     = MakeError(FacilityFTP, -23)
)

// errorMessages maps composite codes to their curated human string, as in
// pacsys.acnet.errors._FTP_STATUS_MESSAGES / DBM_NOPROP documentation.
var errorMessages = map[int]string{
	AcnetPend:         "operation pending",
	AcnetReplyTimeout: "reply timeout (not fatal)",
	AcnetEndmult:      "end multiple replies",
	AcnetDeprecated:   "used a deprecated feature",

	AcnetRetry:        "retryable I/O error",
	AcnetReqtmo:       "request timeout",
	AcnetQuefull:      "destination queue full",
	AcnetBusy:         "destination task busy",
	AcnetNotConnected: "not connected to network",
	AcnetNoSuch:       "no such request or reply",
	AcnetReqrej:       "request rejected",
	AcnetCancelled:    "request cancelled",
	AcnetNoNode:       "no such logical node",
	AcnetNodeDown:     "node offline",
	AcnetInvarg:       "invalid argument",

	DbmNoprop: "property not found",

	DpmPend:  "request pending",
	DpmStale: "stale data warning",

	FtpCollecting: "collecting data",
	FtpWaitDelay:  "waiting for arm delay",
	FtpWaitEvent:  "waiting for arm event",
	FtpPend:       "snapshot pending",
	FtpInvtyp:     "invalid request typecode",
	FtpInvssdn:    "invalid SSDN",
	FtpFeOutofmem: "front-end out of memory",
	FtpNochan:     "no available MADC plot channels",
	FtpNoDecoder:  "no available clock decoders",
	FtpFePlotlim:  "front-end plot limit exceeded",
	FtpInvnumdev:  "invalid number of devices",
	FtpEndofdata:  "end of data",
	FtpInvreqlen:  "invalid request length",
	FtpNoData:     "no data from MADC",
	FtpInvreq:     "retrieval doesn't match active setup",
	FtpBadev:      "wrong set of clock events",
	FtpBumped:     "bumped by higher priority plot",
	FtpUnsfreq:    "unsupported frequency",
	FtpBigdly:     "delay too long",
	FtpUnsdev:     "unsupported device type",
	FtpSoftware:   "internal software error",
	FtpNotrdy:     "data not ready",
}

// ErrorMessage returns the curated human string for a composite status
// code, or, if the code isn't in the registry, "unknown error" for a
// negative error number and "unknown status" otherwise.
func ErrorMessage(composite int) string {
	if msg, ok := errorMessages[composite]; ok {
		return msg
	}
	facility, errorNumber := DecomposeErrorCode(composite)
	return genericMessage(facility, errorNumber)
}

func genericMessage(facility int, errorNumber int8) string {
	if errorNumber < 0 {
		return "unknown error"
	}
	return "unknown status"
}
