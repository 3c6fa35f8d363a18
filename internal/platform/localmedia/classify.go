package localmedia

const (
	ProjectionEquirectangular = "equirectangular"
	ProjectionNone            = "none"
)

type Classification struct {
	Is360      bool
	Projection string
}

// Classify360 flags frames whose width/height ratio lies in [1.8, 2.1] as
// equirectangular. Ultrawide 2:1 footage that is not spherical is misclassified.
func Classify360(width, height int) Classification {
	if width <= 0 || height <= 0 {
		return Classification{Projection: ProjectionNone}
	}
	ratio := float64(width) / float64(height)
	if ratio >= 1.8 && ratio <= 2.1 {
		return Classification{Is360: true, Projection: ProjectionEquirectangular}
	}
	return Classification{Projection: ProjectionNone}
}
