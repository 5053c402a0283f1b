// Package fracindex генерирует ключи сортировки для соседних элементов дерева.
// Ключ — строка над алфавитом 0-9A-Za-z, сравнимая побайтово: порядок строк
// совпадает с порядком дробей 0.<key> по основанию 62. Это позволяет хранить
// ключ в текстовой колонке с бинарной коллацией и вставлять элемент между
// любыми двумя соседями без перенумерации остальных.
package fracindex

import (
	"fmt"
	"strings"
)

// Алфавит в порядке возрастания байтов ASCII
const digits = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const base = len(digits)

// Between возвращает ключ строго между before и after.
// Пустая строка означает отсутствие соседа с соответствующей стороны.
// Повторные вставки в одну и ту же позицию удлиняют ключ логарифмически,
// а не линейно: используется алгоритм средней точки, не инкремент строки.
func Between(before, after string) (string, error) {
	if err := validate(before); err != nil {
		return "", fmt.Errorf("invalid before key: %w", err)
	}
	if err := validate(after); err != nil {
		return "", fmt.Errorf("invalid after key: %w", err)
	}
	if before != "" && after != "" && before >= after {
		return "", fmt.Errorf("before key %q is not less than after key %q", before, after)
	}

	return midpoint(before, after), nil
}

// Spread возвращает n строго возрастающих ключей, равномерно распределенных
// по всему пространству. Результат детерминирован: повторный вызов для того же
// n дает те же ключи, поэтому операция починки индекса идемпотентна.
func Spread(n int) []string {
	if n <= 0 {
		return nil
	}

	// Подбираем минимальную длину ключа, дающую n различных значений
	width := 1
	capacity := base - 1 // значение 0 зарезервировано: ключ не может быть пустым
	for capacity < n {
		width++
		capacity = capacity*base + (base - 1)
	}

	// Шаг между значениями в пространстве base^width
	space := 1
	for i := 0; i < width; i++ {
		space *= base
	}
	step := space / (n + 1)

	keys := make([]string, n)
	for i := 0; i < n; i++ {
		keys[i] = encode((i+1)*step, width)
	}
	return keys
}

// Valid сообщает, является ли строка корректным ключом
func Valid(key string) bool {
	return key != "" && validate(key) == nil
}

func validate(key string) error {
	if key == "" {
		return nil
	}
	if strings.HasSuffix(key, "0") {
		return fmt.Errorf("key %q has a trailing zero digit", key)
	}
	for i := 0; i < len(key); i++ {
		if strings.IndexByte(digits, key[i]) < 0 {
			return fmt.Errorf("key %q contains byte %q outside the alphabet", key, key[i])
		}
	}
	return nil
}

// midpoint строит ключ между a и b. Инвариант на входе: a < b (пустая строка
// означает 0 слева и 1 справа), ни один ключ не оканчивается на '0'.
func midpoint(a, b string) string {
	if b != "" {
		// Общий префикс копируется как есть, середина ищется в хвостах.
		// Отсутствующие разряды a считаются нулями.
		n := 0
		for n < len(b) && digitAt(a, n) == b[n] {
			n++
		}
		if n > 0 {
			return b[:n] + midpoint(tail(a, n), b[n:])
		}
	}

	// Первые разряды различаются
	da := 0
	if a != "" {
		da = strings.IndexByte(digits, a[0])
	}
	db := base
	if b != "" {
		db = strings.IndexByte(digits, b[0])
	}

	if db-da > 1 {
		// Между разрядами есть свободное значение
		return string(digits[(da+db+1)/2])
	}

	// Разряды соседние: либо укорачиваем b, либо углубляемся в a
	if len(b) > 1 {
		return b[:1]
	}
	return string(digits[da]) + midpoint(tail(a, 1), "")
}

func digitAt(s string, i int) byte {
	if i < len(s) {
		return s[i]
	}
	return '0'
}

func tail(s string, n int) string {
	if n < len(s) {
		return s[n:]
	}
	return ""
}

// encode переводит значение в дробь фиксированной ширины по основанию 62
// и отбрасывает хвостовые нули (порядок при этом сохраняется)
func encode(value, width int) string {
	buf := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		buf[i] = digits[value%base]
		value /= base
	}
	end := width
	for end > 1 && buf[end-1] == '0' {
		end--
	}
	return string(buf[:end])
}
