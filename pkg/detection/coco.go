package detection

// COCOClasses contains the 80 COCO class names
var COCOClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator",
	"book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}

// ClassName returns the COCO name for id, or "object".
func ClassName(id int) string {
	if id < 0 || id >= len(COCOClasses) {
		return "object"
	}
	return COCOClasses[id]
}

// ObstacleClasses are the classes that matter to a pedestrian.
var ObstacleClasses = map[string]bool{
	"person": true, "bicycle": true, "car": true, "motorcycle": true, "bus": true,
	"truck": true, "train": true, "traffic light": true, "fire hydrant": true,
	"stop sign": true, "parking meter": true, "bench": true, "dog": true, "horse": true,
	"chair": true, "couch": true, "potted plant": true, "dining table": true,
	"suitcase": true, "bed": true, "toilet": true, "refrigerator": true,
}

// ClassHeights are typical real-world object heights in feet, used for
// distance estimation.
var ClassHeights = map[string]float64{
	"person":        5.6,
	"bicycle":       3.5,
	"car":           4.9,
	"motorcycle":    3.8,
	"bus":           10.5,
	"truck":         11.0,
	"train":         13.0,
	"traffic light": 3.0,
	"fire hydrant":  2.5,
	"stop sign":     2.5,
	"parking meter": 4.5,
	"bench":         2.8,
	"dog":           2.0,
	"horse":         5.3,
	"chair":         3.0,
	"couch":         2.8,
	"potted plant":  2.5,
	"dining table":  2.5,
	"suitcase":      2.2,
	"bed":           2.0,
	"toilet":        2.3,
	"refrigerator":  5.8,
}

// DefaultHeight is used for classes without a known height.
const DefaultHeight = 3.0
