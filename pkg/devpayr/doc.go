// Package devpayr is the public entry point of the DevPayr Go SDK.
//
// Bootstrap validates the configuration, checks the license against the
// DevPayr API and applies the configured failure behavior when the project
// is unpaid:
//
//	cfg, err := devpayr.NewConfig(
//	    devpayr.WithLicense(os.Getenv("DEVPAYR_LICENSE")),
//	    devpayr.WithSecret(os.Getenv("DEVPAYR_SECRET")),
//	    devpayr.WithInvalidBehavior("log"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client, res, err := devpayr.Bootstrap(ctx, cfg,
//	    devpayr.WithOnReady(func(payload map[string]interface{}) {
//	        log.Println("licensed")
//	    }))
//
// The same Client exposes the management services (Projects, Licenses,
// Domains, Injectables, Payments). With only an API key configured,
// Bootstrap skips runtime validation and returns a nil Result.
package devpayr
