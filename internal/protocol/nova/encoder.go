package nova

import "encoding/binary"

// BuildCommand 构造下行命令帧，序列号占位为0（发送时由关联器改写）
func BuildCommand(reg Register, code byte, payload []byte, dest Destination) Frame {
	buf := make([]byte, 0, MinFrameLen+len(payload))
	buf = appendHeader(buf, reg, code, dest, uint16(len(payload)))
	buf = append(buf, payload...)
	return Frame(AppendChecksum(buf))
}

// BuildQuery 构造读命令：长度字段为期望应答长度，不带数据区
func BuildQuery(reg Register, readLen uint16, dest Destination) Frame {
	buf := make([]byte, 0, MinFrameLen)
	buf = appendHeader(buf, reg, CodeRead, dest, readLen)
	return Frame(AppendChecksum(buf))
}

// BuildWrite 构造写命令
func BuildWrite(reg Register, data []byte, dest Destination) Frame {
	return BuildCommand(reg, CodeWrite, data, dest)
}

// BuildResponse 构造设备应答帧（帧头 AA 55），用于模拟设备与测试
func BuildResponse(seq uint8, reg Register, data []byte, dest Destination) Frame {
	buf := make([]byte, 0, MinFrameLen+len(data))
	buf = append(buf, ResponseMarker[0], ResponseMarker[1], 0x00, seq, 0x00)
	buf = append(buf, dest[:]...)
	buf = append(buf, 0x00, CodeRead, 0x00)
	buf = append(buf, reg[:]...)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(data)))
	buf = append(buf, data...)
	return Frame(AppendChecksum(buf))
}

func appendHeader(buf []byte, reg Register, code byte, dest Destination, length uint16) []byte {
	buf = append(buf,
		RequestMarker[0], RequestMarker[1],
		0x00,       // ack
		0x00,       // seq
		SourceHost, // src
	)
	buf = append(buf, dest[:]...)
	buf = append(buf, 0x00, code, 0x00)
	buf = append(buf, reg[:]...)
	return binary.LittleEndian.AppendUint16(buf, length)
}
