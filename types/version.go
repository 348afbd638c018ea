package types

// Version is the canonical project version.
// The worker binary, the host-side driver and the CLI share this version.
const Version = "0.4.0"

// ProtocolVersion is the session protocol version the worker expects in the
// session header. Hosts sending a different version are logged, not rejected.
const ProtocolVersion = "2.0"
