// Package serializer 定义缓存条目在磁盘上的编码方式。
package serializer

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ceyewan/harvest/xerrors"
)

// ErrUnsupportedSerializer 不支持的序列化器类型
var ErrUnsupportedSerializer = xerrors.Wrap(xerrors.ErrInvalidInput, "unsupported serializer type")

// Serializer 定义序列化接口
type Serializer interface {
	Marshal(value any) ([]byte, error)
	Unmarshal(data []byte, dest any) error
	Name() string
}

// JSONSerializer JSON 序列化器，便于人工查看缓存文件
type JSONSerializer struct{}

func (JSONSerializer) Marshal(value any) ([]byte, error)     { return json.Marshal(value) }
func (JSONSerializer) Unmarshal(data []byte, dest any) error { return json.Unmarshal(data, dest) }
func (JSONSerializer) Name() string                          { return "json" }

// MessagePackSerializer MessagePack 序列化器，payload 以原始字节存储，无 base64 膨胀
type MessagePackSerializer struct{}

func (MessagePackSerializer) Marshal(value any) ([]byte, error)     { return msgpack.Marshal(value) }
func (MessagePackSerializer) Unmarshal(data []byte, dest any) error { return msgpack.Unmarshal(data, dest) }
func (MessagePackSerializer) Name() string                          { return "msgpack" }

// New 创建序列化器："msgpack"（默认）或 "json"
func New(serializerType string) (Serializer, error) {
	switch serializerType {
	case "msgpack", "":
		return MessagePackSerializer{}, nil
	case "json":
		return JSONSerializer{}, nil
	default:
		return nil, xerrors.Wrapf(ErrUnsupportedSerializer, "%q", serializerType)
	}
}
