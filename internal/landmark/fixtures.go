package landmark

// FaceProportions describes a synthetic face used to build canned landmark sets.
// Widths are relative to the cheekbone width.
type FaceProportions struct {
	CheekWidth    float64 // cheekbone-to-cheekbone width in frame-height units
	LengthRatio   float64 // forehead top to chin / cheek width
	JawRatio      float64 // jaw width / cheek width
	ForeheadRatio float64 // forehead width / cheek width
	ChinRatio     float64 // chin width / jaw width
}

// HandProportions describes a synthetic open hand, palm facing the camera.
type HandProportions struct {
	PalmLength  float64 // wrist to middle MCP in frame-height units
	FingerRatio float64 // middle finger length / palm length
	PalmRatio   float64 // index MCP to pinky MCP / palm length
}

// FaceFixture builds a face mesh set centered in a square frame. Only the
// indices read by the classifiers are placed; every other point sits at the
// face center.
func FaceFixture(p FaceProportions) Set {
	const cx, cy = 0.5, 0.5

	w := p.CheekWidth
	l := w * p.LengthRatio
	jaw := w * p.JawRatio
	forehead := w * p.ForeheadRatio
	chin := jaw * p.ChinRatio

	points := make([]Point, FaceMesh.Points)
	for i := range points {
		points[i] = Point{X: cx, Y: cy}
	}

	set := func(i int, x, y float64) { points[i] = Point{X: x, Y: y} }

	set(FaceForeheadTop, cx, cy-0.45*l)
	set(FaceChin, cx, cy+0.55*l)
	set(FaceForeheadCenter, cx, cy-0.33*l)
	set(FaceNoseTip, cx, cy+0.08*l)

	set(FaceLeftCheekbone, cx-w/2, cy)
	set(FaceRightCheekbone, cx+w/2, cy)
	set(FaceLeftForehead, cx-forehead/2, cy-0.30*l)
	set(FaceRightForehead, cx+forehead/2, cy-0.30*l)
	set(FaceLeftJaw, cx-jaw/2, cy+0.30*l)
	set(FaceRightJaw, cx+jaw/2, cy+0.30*l)
	set(FaceLeftChin, cx-chin/2, cy+0.50*l)
	set(FaceRightChin, cx+chin/2, cy+0.50*l)
	set(FaceLeftCheek, cx-w*0.28, cy+0.06*l)
	set(FaceRightCheek, cx+w*0.28, cy+0.06*l)

	return Set{Topology: FaceMesh, Points: points, Aspect: 1, Score: 0.95}
}

// RoundFaceLandmarks returns a face whose jaw, cheek and forehead widths are
// equal and whose length equals its width.
func RoundFaceLandmarks() Set {
	return FaceFixture(FaceProportions{
		CheekWidth:    0.36,
		LengthRatio:   1.0,
		JawRatio:      1.0,
		ForeheadRatio: 1.0,
		ChinRatio:     0.55,
	})
}

// OvalFaceLandmarks returns a face about one and a half times longer than wide
// with a jaw narrower than the forehead.
func OvalFaceLandmarks() Set {
	return FaceFixture(FaceProportions{
		CheekWidth:    0.32,
		LengthRatio:   1.45,
		JawRatio:      0.80,
		ForeheadRatio: 0.88,
		ChinRatio:     0.55,
	})
}

// HandFixture builds an upright open right hand with its wrist near the
// bottom of a square frame.
func HandFixture(p HandProportions) Set {
	const wx, wy = 0.5, 0.85

	palm := p.PalmLength
	finger := palm * p.FingerRatio
	half := palm * p.PalmRatio / 2
	mcpY := wy - palm

	points := make([]Point, Hand.Points)
	set := func(i int, x, y float64) { points[i] = Point{X: x, Y: y} }

	set(Wrist, wx, wy)

	// Thumb fans out to the index side
	set(ThumbCMC, wx+half*0.8, wy-palm*0.15)
	set(ThumbMCP, wx+half*1.3, wy-palm*0.35)
	set(ThumbIP, wx+half*1.7, wy-palm*0.55)
	set(ThumbTip, wx+half*2.0, wy-palm*0.75)

	fingers := []struct {
		mcp   int
		x     float64
		scale float64
		drop  float64
	}{
		{IndexMCP, wx + half, 0.90, 0.04},
		{MiddleMCP, wx, 1.00, 0.00},
		{RingMCP, wx - half/2, 0.93, 0.02},
		{PinkyMCP, wx - half, 0.75, 0.04},
	}

	for _, f := range fingers {
		baseY := mcpY + f.drop*palm
		length := finger * f.scale
		set(f.mcp, f.x, baseY)
		set(f.mcp+1, f.x, baseY-0.40*length)
		set(f.mcp+2, f.x, baseY-0.70*length)
		set(f.mcp+3, f.x, baseY-length)
	}

	return Set{Topology: Hand, Points: points, Aspect: 1, Score: 0.95}
}

// OpenPalmLandmarks returns a hand with average proportions.
func OpenPalmLandmarks() Set {
	return HandFixture(HandProportions{PalmLength: 0.30, FingerRatio: 0.95, PalmRatio: 0.80})
}
