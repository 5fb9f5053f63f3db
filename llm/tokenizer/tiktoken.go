package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TiktokenTokenizer 使用 tiktoken 编码计数.
// Groq 托管的开源模型没有官方 BPE, 使用 cl100k_base 近似.
type TiktokenTokenizer struct {
	model    string
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
}

// 模型族前缀到 tiktoken 编码的映射.
var familyEncodings = []struct {
	prefix   string
	encoding string
}{
	{"gpt-4o", "o200k_base"},
	{"gpt-4", "cl100k_base"},
	{"gpt-3.5", "cl100k_base"},
	{"llama", "cl100k_base"},
	{"meta-llama", "cl100k_base"},
	{"mixtral", "cl100k_base"},
	{"gemma", "cl100k_base"},
	{"qwen", "cl100k_base"},
	{"openai/gpt-oss", "o200k_base"},
}

func lookupEncoding(model string) (string, bool) {
	for _, f := range familyEncodings {
		if strings.HasPrefix(model, f.prefix) {
			return f.encoding, true
		}
	}
	return "", false
}

// NewTiktokenTokenizer 为给定模型创建 tiktoken 分词器, 未知模型默认 cl100k_base.
func NewTiktokenTokenizer(model string) *TiktokenTokenizer {
	encoding, ok := lookupEncoding(strings.ToLower(model))
	if !ok {
		encoding = "cl100k_base"
	}
	return &TiktokenTokenizer{model: model, encoding: encoding}
}

// init 懒加载编码数据(首次使用时可能需要下载).
func (t *TiktokenTokenizer) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *TiktokenTokenizer) CountTokens(text string) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

func (t *TiktokenTokenizer) CountMessages(messages []Message) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}

	total := 0
	for _, msg := range messages {
		total += perMessageOverhead
		total += len(t.enc.Encode(msg.Content, nil, nil))
		total += len(t.enc.Encode(msg.Role, nil, nil))
	}
	return total + conversationEndOverhead, nil
}

func (t *TiktokenTokenizer) Name() string {
	return fmt.Sprintf("tiktoken[%s]", t.encoding)
}

// Encoding 返回所选编码名称.
func (t *TiktokenTokenizer) Encoding() string { return t.encoding }
