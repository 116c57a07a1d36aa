package nova

import "encoding/binary"

// DefaultStallLimit 第二个帧头字节不匹配且候选帧未收齐时，最多等待的 Feed 次数
const DefaultStallLimit = 2

// DecoderStats 解码统计
type DecoderStats struct {
	Frames           uint64 `json:"frames"`
	DroppedBytes     uint64 `json:"dropped_bytes"`
	ChecksumFailures uint64 `json:"checksum_failures"`
	Stalls           uint64 `json:"stalls"`
}

// StreamDecoder 应答流重组器：按帧头+长度字段切分，校验和不通过的帧整帧丢弃。
// 非并发安全，由会话读循环独占使用。
type StreamDecoder struct {
	buf        []byte
	marker     [2]byte
	stallLimit int
	stalled    int
	requests   bool
	stats      DecoderStats
}

// DecoderOption 解码器选项
type DecoderOption func(*StreamDecoder)

// WithStallLimit 设置第二帧头字节不匹配时的等待次数，<=0 表示立即丢字节
func WithStallLimit(n int) DecoderOption {
	return func(d *StreamDecoder) { d.stallLimit = n }
}

// WithMarker 覆盖期望帧头（默认设备应答 AA 55）
func WithMarker(m [2]byte) DecoderOption {
	return func(d *StreamDecoder) { d.marker = m }
}

// WithRequestFraming 按请求帧切分：读命令的长度字段是期望应答长度，帧本身只有帧头。
// 配合 WithMarker(RequestMarker) 在设备侧解析网关发出的命令。
func WithRequestFraming() DecoderOption {
	return func(d *StreamDecoder) { d.requests = true }
}

// NewStreamDecoder 创建解码器
func NewStreamDecoder(opts ...DecoderOption) *StreamDecoder {
	d := &StreamDecoder{marker: ResponseMarker, stallLimit: DefaultStallLimit}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Feed 追加字节并返回本次可提取的全部有效帧
func (d *StreamDecoder) Feed(p []byte) []Frame {
	d.buf = append(d.buf, p...)
	var out []Frame
	for len(d.buf) >= MinFrameLen {
		if d.buf[0] != d.marker[0] {
			d.drop(1)
			continue
		}
		if d.buf[1] != d.marker[1] {
			// 候选帧未收齐前最多等待 stallLimit 次，收齐后立即丢弃一字节
			if len(d.buf) < d.frameLen() && d.stalled < d.stallLimit {
				d.stalled++
				d.stats.Stalls++
				break
			}
			d.drop(1)
			continue
		}
		d.stalled = 0

		total := d.frameLen()
		if len(d.buf) < total {
			break
		}
		candidate := d.buf[:total]
		if VerifyChecksum(candidate) == nil {
			fr := make(Frame, total)
			copy(fr, candidate)
			out = append(out, fr)
			d.stats.Frames++
		} else {
			d.stats.ChecksumFailures++
		}
		d.buf = d.buf[total:]
	}
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return out
}

// Buffered 当前缓冲字节数
func (d *StreamDecoder) Buffered() int { return len(d.buf) }

// Stats 返回统计快照
func (d *StreamDecoder) Stats() DecoderStats { return d.stats }

// Reset 清空缓冲（重连时使用）
func (d *StreamDecoder) Reset() {
	d.buf = nil
	d.stalled = 0
}

// frameLen 缓冲区头部候选帧的完整长度
func (d *StreamDecoder) frameLen() int {
	if d.requests && d.buf[OffsetCode] == CodeRead {
		return MinFrameLen
	}
	return MinFrameLen + int(binary.LittleEndian.Uint16(d.buf[OffsetLength:]))
}

func (d *StreamDecoder) drop(n int) {
	d.buf = d.buf[n:]
	d.stats.DroppedBytes += uint64(n)
	d.stalled = 0
}
