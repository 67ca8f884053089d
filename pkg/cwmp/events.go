package cwmp

// Inform event codes.
const (
	EventBootstrap           = "0 BOOTSTRAP"
	EventBoot                = "1 BOOT"
	EventPeriodic            = "2 PERIODIC"
	EventValueChange         = "4 VALUE CHANGE"
	EventConnectionRequest   = "6 CONNECTION REQUEST"
	EventTransferComplete    = "7 TRANSFER COMPLETE"
	EventDiagnosticsComplete = "8 DIAGNOSTICS COMPLETE"
	EventMDownload           = "M Download"
)

// TimeFormat is the dateTime layout used on the wire.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// UnknownTime is the literal sent for times the CPE does not know.
const UnknownTime = "0001-01-01T00:00:00Z"
