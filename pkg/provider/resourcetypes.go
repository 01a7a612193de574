package provider

// ResourceTypeMappings maps abstract accelerator shapes to market-specific
// instance type names. Key is the abstract type (e.g. "h100-8x"), value maps
// market name to its concrete type.
var ResourceTypeMappings = map[string]map[string]string{
	"h200-8x": {
		"aws":     "p5en.48xlarge",
		"httpapi": "gpu_8x_h200",
	},
	"h100-8x": {
		"aws":     "p5.48xlarge",
		"httpapi": "gpu_8x_h100_sxm5",
	},
	"a100-8x": {
		"aws":     "p4d.24xlarge",
		"httpapi": "gpu_8x_a100",
	},
	"a10-1x": {
		"aws":     "g5.xlarge",
		"httpapi": "gpu_1x_a10",
	},
	"l4-1x": {
		"aws": "g6.xlarge",
	},
}

// ResolveResourceType maps an abstract type to the market's own type name.
// Concrete or unknown names are returned unchanged.
func ResolveResourceType(resourceType, market string) string {
	if mapping, ok := ResourceTypeMappings[resourceType]; ok {
		if concrete, ok := mapping[market]; ok {
			return concrete
		}
	}
	return resourceType
}

// IsAbstractType reports whether name has market mappings.
func IsAbstractType(name string) bool {
	_, ok := ResourceTypeMappings[name]
	return ok
}
