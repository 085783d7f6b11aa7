package focus

// ResolveDriver inspects a source's configured crawler engine and returns the
// fetch driver name to use. For WEB/DARKNET sources, PLAYWRIGHT and PUPPETEER
// engines map to the playwright driver and CUSTOM maps to the ai driver;
// everything else is the plain fetch driver. SEARCH_ENGINE and SOCIAL_MEDIA
// sources always use their own type-specific fetch path regardless of the
// resolved label; the label is still recorded for telemetry.
func ResolveDriver(src Source) Driver {
	if src.Web == nil {
		return DriverFetch
	}
	switch src.Web.Engine {
	case EnginePlaywright, EnginePuppeteer:
		return DriverPlaywright
	case EngineCustom:
		return DriverAI
	default:
		return DriverFetch
	}
}
