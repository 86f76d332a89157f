// Package config manages the localota profile file.
//
// The file is YAML, stored at $XDG_CONFIG_HOME/localota/config.yaml (or the
// platform equivalent resolved by github.com/adrg/xdg) and can be pointed
// elsewhere with LOCALOTA_CONFIG. It holds named device profiles, each
// remembering the device address, the build environment and the outcome of
// the last update session, plus a few application-wide preferences.
//
// Command-line flags override a profile; a profile overrides built-in
// defaults.
//
// # Security
//
// Wi-Fi passwords are never written to this file. They are always prompted
// for or passed explicitly.
//
// # Usage
//
//	reg, err := config.LoadRegistry()
//	if err != nil {
//	    return err
//	}
//	p := reg.EnsureProfile("bench")
//	p.Address = "192.168.4.1"
//	if err := reg.Save(); err != nil {
//	    return err
//	}
//
// # Thread Safety
//
// The global registry is loaded once with sync.Once. Saves are serialized by
// a package mutex and written atomically through a temp file and rename.
package config
