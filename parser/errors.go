package parser

import "github.com/ceyewan/harvest/xerrors"

// ErrParse 响应无法按配置解析，抓取到的原始响应不受影响（已写入缓存）
var ErrParse = xerrors.WithCode(xerrors.New("parser: parse error"), xerrors.CodeParse)
