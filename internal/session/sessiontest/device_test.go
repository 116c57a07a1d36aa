package sessiontest_test

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/nova-gateway/internal/protocol/nova"
	"github.com/taoyao-code/nova-gateway/internal/session/sessiontest"
)

func dial(t *testing.T, d *sessiontest.Device) net.Conn {
	t.Helper()
	host, port := d.Addr()
	c, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// readFrames 读取应答直到凑满 n 帧
func readFrames(t *testing.T, c net.Conn, n int) []nova.Frame {
	t.Helper()
	dec := nova.NewStreamDecoder()
	buf := make([]byte, 512)
	var out []nova.Frame
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	for len(out) < n {
		k, err := c.Read(buf)
		require.NoError(t, err)
		out = append(out, dec.Feed(buf[:k])...)
	}
	return out
}

func TestDeviceAnswersQueries(t *testing.T) {
	d := sessiontest.NewDevice(t)
	d.Reply(nova.RegControllerID, []byte{0x01, 0x02})
	c := dial(t, d)

	// 读命令只有帧头，与写命令同批到达
	q := nova.BuildQuery(nova.RegControllerID, 2, nova.DestController).WithSeq(9)
	z := nova.BuildQuery(nova.RegFirmware, 4, nova.DestController).WithSeq(10)
	w := nova.BuildWrite(nova.RegDisplayMode, []byte{0x02}, nova.DestController).WithSeq(11)
	batch := append(append(append([]byte{}, q...), z...), w...)
	_, err := c.Write(batch)
	require.NoError(t, err)

	frames := readFrames(t, c, 3)
	assert.Equal(t, uint8(9), frames[0].Seq())
	assert.Equal(t, []byte{0x01, 0x02}, frames[0].Payload())
	assert.Equal(t, uint8(10), frames[1].Seq())
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x00}, frames[1].Payload(), "未登记寄存器按请求长度回零")
	assert.Equal(t, uint8(11), frames[2].Seq())
	assert.Empty(t, frames[2].Payload())

	assert.Equal(t, 1, d.Count(nova.RegControllerID, true))
	assert.Equal(t, 1, d.Count(nova.RegDisplayMode, false))
}

func TestDeviceSplitQuery(t *testing.T) {
	d := sessiontest.NewDevice(t)
	c := dial(t, d)

	q := nova.BuildQuery(nova.RegDVIStatus, 1, nova.DestController).WithSeq(3)
	_, err := c.Write(q[:7])
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	_, err = c.Write(q[7:])
	require.NoError(t, err)

	frames := readFrames(t, c, 1)
	assert.Equal(t, uint8(3), frames[0].Seq())
	assert.Equal(t, []byte{0x00}, frames[0].Payload())
}
