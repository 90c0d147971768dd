package gpu

import (
	"github.com/gekko3d/planets/planetrt/rt/scene"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
)

// NewPlanetUniforms computes a planet's per-frame uniforms. Without a light
// the planet is lit from the camera.
func NewPlanetUniforms(ps *scene.PlanetShape, eye mgl64.Vec3, view, proj mgl64.Mat4, light scene.LightSource) PlanetUniforms {
	model := ps.Model()
	modelView := view.Mul4(model)
	cam := ps.LocalCamera(eye)

	lightDir := cam
	colour := mgl32.Vec3{1, 1, 1}
	if light != nil {
		l := model.Inv().Mul4x1(light.LightPosition().Vec4(1))
		lightDir = mgl32.Vec3{float32(l[0]), float32(l[1]), float32(l[2])}
		colour = light.LightColour()
	}
	if lightDir.Len() > 0 {
		lightDir = lightDir.Normalize()
	}

	return PlanetUniforms{
		MVP:         scene.Mat4f(proj.Mul4(modelView)),
		ModelView:   scene.Mat4f(modelView),
		LightDir:    lightDir.Vec4(0),
		LightColour: colour.Vec4(1),
		Camera:      cam.Vec4(cam.Len() - 1),
	}
}
