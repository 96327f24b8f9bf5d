package world

import "strings"

// BlockID - сырой идентификатор блока в том виде, в каком его хранит снимок мира,
// например "diamond_ore" или "minecraft:deepslate_iron_ore".
type BlockID string

// Базовые блоки, которые нужны генератору и анализу
const (
	Air         BlockID = "air"
	CaveAir     BlockID = "cave_air"
	Stone       BlockID = "stone"
	Deepslate   BlockID = "deepslate"
	Bedrock     BlockID = "bedrock"
	Dirt        BlockID = "dirt"
	Grass       BlockID = "grass_block"
	Water       BlockID = "water"
	Lava        BlockID = "lava"
	FlowingLava BlockID = "flowing_lava"
)

// Руды
const (
	CoalOre     BlockID = "coal_ore"
	CopperOre   BlockID = "copper_ore"
	IronOre     BlockID = "iron_ore"
	LapisOre    BlockID = "lapis_ore"
	RedstoneOre BlockID = "redstone_ore"
	GoldOre     BlockID = "gold_ore"
	EmeraldOre  BlockID = "emerald_ore"
	DiamondOre  BlockID = "diamond_ore"
)

const namespaceSep = ":"

// Name возвращает идентификатор без пространства имён ("minecraft:lava" -> "lava")
func (id BlockID) Name() string {
	s := string(id)
	if i := strings.LastIndex(s, namespaceSep); i >= 0 {
		return s[i+1:]
	}
	return s
}

// IsLava сообщает, является ли блок лавой (стоячей или текущей)
func (id BlockID) IsLava() bool {
	switch BlockID(id.Name()) {
	case Lava, FlowingLava:
		return true
	}
	return false
}

// IsAir сообщает, является ли блок воздухом любого вида
func (id BlockID) IsAir() bool {
	switch BlockID(id.Name()) {
	case Air, CaveAir, "void_air", "":
		return true
	}
	return false
}

// DeepslateVariant возвращает глубинный вариант руды ("iron_ore" -> "deepslate_iron_ore")
func DeepslateVariant(ore BlockID) BlockID {
	return BlockID("deepslate_" + ore.Name())
}
