package gatt

// Transport is the packet transport contract (§6): something that can
// queue outbound HCI frames, run an event loop delivering inbound
// frames, and be stopped. It owns the underlying OS file descriptor.
type Transport interface {
	QueuePacket(p HCIPacket)
	Run() error
	Stop()
}

// Config assembles the parameters a Stack needs: which role to
// start in, the device to bind to, MTU bounds, and advertising
// parameters. It is built exclusively through functional options,
// following the teacher's device-constructor convention rather than a
// config file format (§7, §9).
type Config struct {
	Role             Role
	DeviceID         int
	LocalName        string
	MTU              uint16
	StartupParams    StartupParams
	AdvertisingData  *AdvertisingData
	ScanResponseData *AdvertisingData
}

// Option configures a Config. Unset fields keep their default.
type Option func(*Config)

// DefaultConfig returns a peripheral configuration using device ID -1
// (see WithDeviceID) and the stack's default MTU and advertising
// parameters.
func DefaultConfig() *Config {
	return &Config{
		Role:          RolePeripheral,
		DeviceID:      -1,
		MTU:           DefaultMTU,
		StartupParams: DefaultStartupParams(RolePeripheral),
	}
}

// NewConfig builds a Config from opts, applied in order over the defaults.
func NewConfig(opts ...Option) *Config {
	c := DefaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	c.StartupParams.Role = c.Role
	return c
}

// WithRole selects peripheral or central startup behaviour.
func WithRole(r Role) Option {
	return func(c *Config) { c.Role = r }
}

// WithDeviceID selects which HCI device to bind to; -1 means device 0
// (hci0). No check for LE capability is made.
func WithDeviceID(id int) Option {
	return func(c *Config) { c.DeviceID = id }
}

// WithLocalName sets the device name advertised in the GAP service
// and, space permitting, in the advertising/scan-response payload.
func WithLocalName(name string) Option {
	return func(c *Config) { c.LocalName = name }
}

// WithMTU overrides the default ATT MTU, clamped to [MinMTU, requested].
func WithMTU(mtu uint16) Option {
	return func(c *Config) {
		if mtu < MinMTU {
			mtu = MinMTU
		}
		c.MTU = mtu
	}
}

// WithAdvertisingInterval overrides the default advertising interval
// range (units of 0.625ms, per Core spec).
func WithAdvertisingInterval(min, max uint16) Option {
	return func(c *Config) {
		c.StartupParams.AdvertisingIntervalMin = min
		c.StartupParams.AdvertisingIntervalMax = max
	}
}

// WithAdvertisingData overrides the advertising-data payload the
// peripheral startup sequence sends; nil means an empty payload.
func WithAdvertisingData(ad *AdvertisingData) Option {
	return func(c *Config) { c.AdvertisingData = ad; c.StartupParams.AdvertisingData = ad }
}

// WithScanResponseData overrides the scan-response payload.
func WithScanResponseData(ad *AdvertisingData) Option {
	return func(c *Config) { c.ScanResponseData = ad; c.StartupParams.ScanResponseData = ad }
}
