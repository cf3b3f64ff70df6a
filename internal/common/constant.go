// Package common holds small helpers and constants shared by the client
// packages.
package common

// AppName is shown in the CLI banner and used as the default TOTP issuer.
const AppName = "GophAuth"
