package model

import (
	"database/sql/driver"
	"fmt"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// JSONText 原样保存的 JSON 值，标量答案（1、"B"、10.40）与对象同样可用。
// SQLite 中 JSON 声明的列是 NUMERIC 亲和，数字文本会被改写成整数或实数，
// 因此非 MySQL 方言一律建成 TEXT 列；Scan 仍兼容已被改写的旧数据。
type JSONText []byte

func (j JSONText) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSONText) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append(JSONText(nil), v...)
	case string:
		*j = JSONText(v)
	case int64:
		*j = JSONText(strconv.FormatInt(v, 10))
	case float64:
		*j = JSONText(strconv.FormatFloat(v, 'f', -1, 64))
	default:
		return fmt.Errorf("unsupported JSON column value %T", value)
	}
	return nil
}

func (j JSONText) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSONText) UnmarshalJSON(data []byte) error {
	*j = append((*j)[:0], data...)
	return nil
}

func (JSONText) GormDataType() string {
	return "json"
}

func (JSONText) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "mysql" {
		return "JSON"
	}
	return "TEXT"
}
