// Package config loads and validates tcplink configuration.
//
// Values are resolved in three layers: built-in defaults, then the YAML
// file, then TCPLINK_* environment variables. Validate collects every
// problem into one error so an operator can fix the file in one pass.
//
// Credentials (MQTT password, InfluxDB token) should come from the
// environment rather than the file.
//
// Usage:
//
//	cfg, err := config.Load(os.Getenv("TCPLINK_CONFIG"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Client.Hosts, cfg.Client.Port)
package config
