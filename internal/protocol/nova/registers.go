package nova

// 固定寄存器地址
var (
	RegControllerID = Register{0x02, 0x00, 0x00, 0x00}
	RegDVIStatus    = Register{0x17, 0x00, 0x00, 0x02}
	RegFirmware     = Register{0x04, 0x00, 0x10, 0x04}
	RegBrightness   = Register{0x01, 0x00, 0x00, 0x02}
	RegDisplayMode  = Register{0x04, 0x00, 0x00, 0x13}
)
