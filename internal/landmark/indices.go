package landmark

// Face mesh indices used by the classifiers.
const (
	FaceForeheadTop    = 10
	FaceForeheadCenter = 151
	FaceNoseTip        = 4
	FaceChin           = 152
	FaceLeftCheekbone  = 234
	FaceRightCheekbone = 454
	FaceLeftJaw        = 172
	FaceRightJaw       = 397
	FaceLeftForehead   = 54
	FaceRightForehead  = 284
	FaceLeftChin       = 148
	FaceRightChin      = 377
	FaceLeftCheek      = 50
	FaceRightCheek     = 280
)

// Hand landmark indices following MediaPipe convention.
const (
	Wrist     = 0
	ThumbCMC  = 1
	ThumbMCP  = 2
	ThumbIP   = 3
	ThumbTip  = 4
	IndexMCP  = 5
	IndexPIP  = 6
	IndexDIP  = 7
	IndexTip  = 8
	MiddleMCP = 9
	MiddlePIP = 10
	MiddleDIP = 11
	MiddleTip = 12
	RingMCP   = 13
	RingPIP   = 14
	RingDIP   = 15
	RingTip   = 16
	PinkyMCP  = 17
	PinkyPIP  = 18
	PinkyDIP  = 19
	PinkyTip  = 20
)
