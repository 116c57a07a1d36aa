package catalog

import (
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/taoyao-code/nova-gateway/internal/protocol/nova"
)

//go:embed models.yaml
var defaultModels []byte

// DefaultPort 处理器默认控制端口
const DefaultPort = 5200

// UnknownController 控制器ID未收录时的类型标签
const UnknownController = "Unknown"

var (
	// ErrUnknownModel 型号不存在
	ErrUnknownModel = errors.New("unknown model")
	// ErrUnknownChoice 选项不存在
	ErrUnknownChoice = errors.New("unknown choice")
)

// InputFamily 输入源轮询方式
type InputFamily string

const (
	FamilyNone        InputFamily = "none"
	FamilyCard        InputFamily = "card"         // data[0] 即卡号
	FamilyLayerSource InputFamily = "layer_source" // data[0]=图层, data[1]=源
	FamilyValue       InputFamily = "value"        // data[0] 与输入表 data[0] 比对
)

// Bytes YAML 中以十六进制书写的字节串，允许空格分隔
type Bytes []byte

// UnmarshalYAML 解析 "01 00 00 02" 或 "01000002"
func (b *Bytes) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	raw, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		return fmt.Errorf("line %d: invalid hex %q: %w", n.Line, s, err)
	}
	*b = raw
	return nil
}

// MarshalText 输出小写十六进制
func (b Bytes) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(b)), nil
}

// Choice 一条可选写命令
type Choice struct {
	ID       string `yaml:"id" json:"id"`
	Label    string `yaml:"label" json:"label"`
	Register Bytes  `yaml:"register" json:"register"`
	Dest     Bytes  `yaml:"dest,omitempty" json:"dest,omitempty"`
	Data     Bytes  `yaml:"data" json:"data"`
}

// Reg 寄存器地址
func (c Choice) Reg() nova.Register {
	var r nova.Register
	copy(r[:], c.Register)
	return r
}

// Destination 未配置时发往控制器
func (c Choice) Destination() nova.Destination {
	if len(c.Dest) == 0 {
		return nova.DestController
	}
	var d nova.Destination
	copy(d[:], c.Dest)
	return d
}

// Command 构造写命令帧
func (c Choice) Command() nova.Frame {
	return nova.BuildWrite(c.Reg(), c.Data, c.Destination())
}

func (c Choice) validate() error {
	if c.ID == "" {
		return errors.New("choice without id")
	}
	if len(c.Register) != 4 {
		return fmt.Errorf("choice %q: register must be 4 bytes, got %d", c.ID, len(c.Register))
	}
	if len(c.Dest) != 0 && len(c.Dest) != 4 {
		return fmt.Errorf("choice %q: dest must be 4 bytes, got %d", c.ID, len(c.Dest))
	}
	return nil
}

// InputPoll 当前输入源的查询方式
type InputPoll struct {
	Family   InputFamily `yaml:"family" json:"family"`
	Register Bytes       `yaml:"register,omitempty" json:"register,omitempty"`
	Length   uint16      `yaml:"length,omitempty" json:"length,omitempty"`
}

// Reg 查询寄存器
func (p InputPoll) Reg() nova.Register {
	var r nova.Register
	copy(r[:], p.Register)
	return r
}

// Model 处理器型号描述。各能力表为空即表示不支持。
type Model struct {
	ID           string    `yaml:"id" json:"id"`
	Label        string    `yaml:"label" json:"label"`
	Port         int       `yaml:"port,omitempty" json:"port"`
	Brightness   bool      `yaml:"brightness" json:"brightness"`
	InputPoll    InputPoll `yaml:"inputPoll" json:"input_poll"`
	DisplayModes []Choice  `yaml:"displayModes,omitempty" json:"display_modes,omitempty"`
	Inputs       []Choice  `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Presets      []Choice  `yaml:"presets,omitempty" json:"presets,omitempty"`
	WorkingModes []Choice  `yaml:"workingModes,omitempty" json:"working_modes,omitempty"`
	Scaling      []Choice  `yaml:"scaling,omitempty" json:"scaling,omitempty"`
	PIP          []Choice  `yaml:"pip,omitempty" json:"pip,omitempty"`
	Take         *Choice   `yaml:"take,omitempty" json:"take,omitempty"`
}

// TCPPort 型号端口，未配置时为 5200
func (m *Model) TCPPort() int {
	if m.Port > 0 {
		return m.Port
	}
	return DefaultPort
}

// Catalog 型号目录
type Catalog struct {
	Models        []Model           `yaml:"models"`
	ControllerIDs map[string]string `yaml:"controllerIds"`
	TestPatterns  []Choice          `yaml:"testPatterns"`

	byID map[string]*Model
}

// Default 内置目录
func Default() (*Catalog, error) {
	return Parse(defaultModels)
}

// Load 从文件加载目录，path 为空使用内置目录
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(b)
}

// Parse 解析并校验目录
func Parse(b []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("unmarshal catalog: %w", err)
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) index() error {
	c.byID = make(map[string]*Model, len(c.Models))
	for i := range c.Models {
		m := &c.Models[i]
		if m.ID == "" {
			return fmt.Errorf("model #%d without id", i)
		}
		if _, dup := c.byID[m.ID]; dup {
			return fmt.Errorf("duplicate model %q", m.ID)
		}
		if m.InputPoll.Family == "" {
			m.InputPoll.Family = FamilyNone
		}
		if err := validatePoll(m.InputPoll); err != nil {
			return fmt.Errorf("model %q: %w", m.ID, err)
		}
		for _, list := range [][]Choice{m.DisplayModes, m.Inputs, m.Presets, m.WorkingModes, m.Scaling, m.PIP} {
			for _, ch := range list {
				if err := ch.validate(); err != nil {
					return fmt.Errorf("model %q: %w", m.ID, err)
				}
			}
		}
		if m.Take != nil {
			if err := m.Take.validate(); err != nil {
				return fmt.Errorf("model %q: %w", m.ID, err)
			}
		}
		c.byID[m.ID] = m
	}
	for _, tp := range c.TestPatterns {
		if err := tp.validate(); err != nil {
			return fmt.Errorf("test pattern: %w", err)
		}
	}
	normalized := make(map[string]string, len(c.ControllerIDs))
	for k, v := range c.ControllerIDs {
		normalized[strings.ToLower(k)] = v
	}
	c.ControllerIDs = normalized
	return nil
}

func validatePoll(p InputPoll) error {
	switch p.Family {
	case FamilyNone:
		return nil
	case FamilyCard, FamilyLayerSource, FamilyValue:
		if len(p.Register) != 4 {
			return fmt.Errorf("input poll register must be 4 bytes")
		}
		if p.Length == 0 {
			return fmt.Errorf("input poll length must be positive")
		}
		return nil
	default:
		return fmt.Errorf("unknown input family %q", p.Family)
	}
}

// Lookup 按ID查找型号
func (c *Catalog) Lookup(id string) (*Model, error) {
	m, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, id)
	}
	return m, nil
}

// ControllerLabel 控制器ID（十六进制）对应的型号名
func (c *Catalog) ControllerLabel(idHex string) string {
	if label, ok := c.ControllerIDs[strings.ToLower(idHex)]; ok {
		return label
	}
	return UnknownController
}

// Sorted 按显示名排序的型号列表
func (c *Catalog) Sorted() []Model {
	out := make([]Model, len(c.Models))
	copy(out, c.Models)
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Label) < strings.ToLower(out[j].Label)
	})
	return out
}

// TestPattern 按ID查找测试画面
func (c *Catalog) TestPattern(id string) (Choice, error) {
	return Find(c.TestPatterns, id)
}

// Find 按ID查找选项
func Find(list []Choice, id string) (Choice, error) {
	for _, ch := range list {
		if ch.ID == id {
			return ch, nil
		}
	}
	return Choice{}, fmt.Errorf("%w: %q", ErrUnknownChoice, id)
}

// LabelOf 选项ID对应的显示名，未找到时返回ID本身
func LabelOf(list []Choice, id string) string {
	for _, ch := range list {
		if ch.ID == id {
			return ch.Label
		}
	}
	return id
}
