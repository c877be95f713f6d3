package types

// Version is the canonical project version.
// The CLI, report format and notification payloads share this version.
const Version = "0.1.0"

// ContractVersion is stamped on reports, ledger records and
// notification events. It moves in lockstep with Version.
const ContractVersion = Version
