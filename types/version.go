package types

// Version is the canonical client version.
const Version = "0.3.0"

// ProtocolName identifies the wire protocol spoken by the client.
const ProtocolName = "erldb-http"
