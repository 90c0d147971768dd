package shaders

import (
	_ "embed"
)

//go:embed terrain_gen.wgsl
var TerrainGenWGSL string

//go:embed terrain.wgsl
var TerrainWGSL string

//go:embed water.wgsl
var WaterWGSL string
