package avatar3d

// boneTable maps the logical bone names emitted by motion generators to the
// joint names of the avatar rig.
var boneTable = map[string]string{
	"hips":           "Hips",
	"spine":          "Spine",
	"spine1":         "Spine1",
	"spine2":         "Spine2",
	"chest":          "Spine2",
	"neck":           "Neck",
	"head":           "Head",
	"left_shoulder":  "LeftShoulder",
	"left_arm":       "LeftArm",
	"left_forearm":   "LeftForeArm",
	"left_hand":      "LeftHand",
	"right_shoulder": "RightShoulder",
	"right_arm":      "RightArm",
	"right_forearm":  "RightForeArm",
	"right_hand":     "RightHand",
	"left_upleg":     "LeftUpLeg",
	"left_leg":       "LeftLeg",
	"left_foot":      "LeftFoot",
	"right_upleg":    "RightUpLeg",
	"right_leg":      "RightLeg",
	"right_foot":     "RightFoot",
}

// PhysicalBone looks up the rig joint for a logical bone name.
func PhysicalBone(logical string) (string, bool) {
	name, ok := boneTable[logical]
	return name, ok
}

// PhysicalBoneOrRaw is PhysicalBone but returns the supplied name verbatim
// when the table has no entry for it. Used by the motion driver only; the clip
// builder drops unmapped names instead.
func PhysicalBoneOrRaw(name string) string {
	if phys, ok := boneTable[name]; ok {
		return phys
	}
	return name
}

// LogicalBones returns the logical names known to the bone table.
func LogicalBones() []string {
	names := make([]string, 0, len(boneTable))
	for k := range boneTable {
		names = append(names, k)
	}
	return names
}
